package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"curanova-server/internal/models"
	"curanova-server/internal/services"
	"curanova-server/internal/utils"
)

const (
	claimsKey  = "claims"
	userIDKey  = "userID"
	roleKey    = "userRole"
	patientKey = "patient"
)

// PatientResolver maps an authenticated principal to its Patient record.
type PatientResolver interface {
	Resolve(ctx context.Context, profile services.Profile) (*models.Patient, error)
}

// AuthMiddleware creates a middleware for JWT authentication.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			utils.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(parts[1], secret)
		if err != nil {
			utils.Unauthorized(c, "Invalid token: "+err.Error())
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// PatientMiddleware resolves the authenticated principal to a Patient,
// creating the record on first sight. It must run after AuthMiddleware.
func PatientMiddleware(resolver PatientResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaimsFromContext(c)
		if !ok {
			utils.InternalServerError(c, "Token claims not found in context. AuthMiddleware might be missing.")
			c.Abort()
			return
		}

		patient, err := resolver.Resolve(c.Request.Context(), services.Profile{
			ExternalID: claims.Subject,
			Email:      claims.Email,
			FirstName:  claims.FirstName,
			LastName:   claims.LastName,
		})
		if err != nil {
			utils.RespondError(c, err)
			c.Abort()
			return
		}

		c.Set(patientKey, patient)
		c.Set(userIDKey, patient.ID)
		c.Next()
	}
}

// RoleAuthMiddleware creates a middleware for role-based authorization.
// It should be used *after* AuthMiddleware.
func RoleAuthMiddleware(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetUserRoleFromContext(c)
		if !ok {
			utils.InternalServerError(c, "User role not found in context. AuthMiddleware might be missing.")
			c.Abort()
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				c.Next()
				return
			}
		}

		utils.Forbidden(c, "You do not have permission to access this resource.")
		c.Abort()
	}
}

// GetClaimsFromContext returns the validated token claims.
func GetClaimsFromContext(c *gin.Context) (*utils.Claims, bool) {
	v, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*utils.Claims)
	return claims, ok
}

// GetUserIDFromContext returns the resolved patient id.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	id := c.GetString(userIDKey)
	return id, id != ""
}

// GetUserRoleFromContext returns the role carried by the token.
func GetUserRoleFromContext(c *gin.Context) (models.Role, bool) {
	userRole, exists := c.Get(roleKey)
	if !exists {
		return "", false
	}
	role, ok := userRole.(models.Role)
	return role, ok
}

// GetPatientFromContext returns the patient resolved by PatientMiddleware.
func GetPatientFromContext(c *gin.Context) (*models.Patient, bool) {
	v, exists := c.Get(patientKey)
	if !exists {
		return nil, false
	}
	p, ok := v.(*models.Patient)
	return p, ok
}

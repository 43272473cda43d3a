package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"sportrecord/database"
	"sportrecord/models"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	UserContextKey  contextKey = "user"
	ShardContextKey contextKey = "shard"
)

// Claims carries the user's identity plus the country that keys their home
// shard, so authenticated requests resolve the shard without a lookup fan-out.
type Claims struct {
	UserID   uint            `json:"user_id"`
	Email    string          `json:"email"`
	Country  string          `json:"country"`
	UserType models.UserType `json:"user_type"`
	jwt.RegisteredClaims
}

var jwtSecret []byte

func SetJWTSecret(secret string) {
	jwtSecret = []byte(secret)
}

func GenerateToken(user *models.User, expiration time.Duration) (string, error) {
	claims := &Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Country:  user.Country,
		UserType: user.UserType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}

// Auth authenticates requests and pins them to the caller's home shard.
type Auth struct {
	reg *database.Registry
}

func NewAuth(reg *database.Registry) *Auth {
	return &Auth{reg: reg}
}

// Middleware validates the bearer token, resolves the shard named by the
// country claim and loads the user from that shard into the request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tokenString string
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		claims, err := ValidateToken(tokenString)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		shard := database.ShardKey(claims.Country)
		db, err := a.reg.Resolve(shard)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var user models.User
		if err := db.First(&user, claims.UserID).Error; err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, &user)
		ctx = context.WithValue(ctx, ShardContextKey, shard)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireUserType(types ...models.UserType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := GetUserFromContext(r.Context())
			if user == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			for _, t := range types {
				if user.UserType == t {
					next.ServeHTTP(w, r)
					return
				}
			}

			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func GetShardFromContext(ctx context.Context) database.ShardKey {
	shard, ok := ctx.Value(ShardContextKey).(database.ShardKey)
	if !ok {
		return ""
	}
	return shard
}

// auth.go - JWT middleware для аутентификации и авторизации админки.
// Проверяет подпись Bearer-токена по JWKS, извлекает роли из claim,
// путь к которому задаётся конфигурацией, и помещает claims в контекст.
// Изменяющие запросы требуют роли администратора.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/mpd-concursos/concursos-admin/internal/api/errors"
	"github.com/mpd-concursos/concursos-admin/internal/domain/rbac"
)

// contextKey - тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyClaims - извлечённые claims в контексте запроса.
	ContextKeyClaims contextKey = "jwt_claims"
)

// AuthClaims - claims проверенного токена.
type AuthClaims struct {
	// Subject - sub из JWT.
	Subject string
	// Username - preferred_username, иначе username, иначе sub.
	Username string
	Email    string
	// Roles - роли из настроенного claim.
	Roles []string
	// Admin - среди ролей есть роль администратора.
	Admin bool
}

// JWTAuth - middleware для JWT-аутентификации через JWKS.
type JWTAuth struct {
	jwks       keyfunc.Keyfunc
	logger     *slog.Logger
	issuer     string
	rolesClaim string
	adminRoles []string
	jwtLeeway  time.Duration
}

// JWTOptions - параметры проверки токенов.
type JWTOptions struct {
	Issuer string
	// RolesClaim - путь к claim с ролями через точку (например, "realm_access.roles").
	RolesClaim string
	AdminRoles []string
	Leeway     time.Duration
}

// NewJWTAuth создаёт JWT middleware с JWKS, загружаемым по jwksURL.
// refreshInterval - интервал обновления ключей.
func NewJWTAuth(jwksURL string, refreshInterval time.Duration, opts JWTOptions, logger *slog.Logger) (*JWTAuth, error) {
	// NoErrorReturnFirstHTTPReq - стартуем даже если JWKS ещё недоступен.
	storage, err := jwkset.NewStorageFromHTTP(jwksURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: 10 * time.Second},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           refreshInterval,
		RefreshErrorHandler: func(_ context.Context, err error) {
			logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", jwksURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	return NewJWTAuthWithKeyfunc(k, opts, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS.
func NewJWTAuthWithKeyfunc(kf keyfunc.Keyfunc, opts JWTOptions, logger *slog.Logger) *JWTAuth {
	if opts.RolesClaim == "" {
		opts.RolesClaim = "roles"
	}
	if len(opts.AdminRoles) == 0 {
		opts.AdminRoles = []string{rbac.RoleAdmin}
	}
	return &JWTAuth{
		jwks:       kf,
		logger:     logger.With(slog.String("component", "jwt_auth")),
		issuer:     opts.Issuer,
		rolesClaim: opts.RolesClaim,
		adminRoles: opts.AdminRoles,
		jwtLeeway:  opts.Leeway,
	}
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token, валидирует подпись (RS256) и помещает
// claims в контекст.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.Unauthorized(w, "Отсутствует заголовок Authorization")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				apierrors.Unauthorized(w, "Неверный формат Authorization: ожидается Bearer <token>")
				return
			}

			raw := jwt.MapClaims{}
			parserOpts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"RS256"}),
				jwt.WithExpirationRequired(),
				jwt.WithLeeway(j.jwtLeeway),
			}
			if j.issuer != "" {
				parserOpts = append(parserOpts, jwt.WithIssuer(j.issuer))
			}

			token, err := jwt.ParseWithClaims(parts[1], raw, j.jwks.KeyfuncCtx(r.Context()), parserOpts...)
			if err != nil || !token.Valid {
				msg := "невалидный токен"
				if err != nil {
					msg = err.Error()
				}
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", msg),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Невалидный или просроченный токен")
				return
			}

			subject, err := raw.GetSubject()
			if err != nil || subject == "" {
				apierrors.Unauthorized(w, "Отсутствует sub в токене")
				return
			}

			claims := j.buildAuthClaims(subject, raw)
			ctx := context.WithValue(r.Context(), ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (j *JWTAuth) buildAuthClaims(subject string, raw jwt.MapClaims) *AuthClaims {
	roles := rolesFromClaim(raw, j.rolesClaim)
	return &AuthClaims{
		Subject:  subject,
		Username: firstString(raw, "preferred_username", "username", "sub"),
		Email:    firstString(raw, "email"),
		Roles:    roles,
		Admin:    rbac.HasAnyRole(roles, j.adminRoles),
	}
}

// rolesFromClaim достаёт список ролей по пути через точку. Claim может
// быть массивом строк или строкой с ролями через пробел или запятую.
func rolesFromClaim(raw jwt.MapClaims, path string) []string {
	var cur any = map[string]any(raw)
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[key]
	}

	switch v := cur.(type) {
	case []any:
		roles := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
		return roles
	case []string:
		return v
	case string:
		return strings.FieldsFunc(v, func(r rune) bool { return r == ' ' || r == ',' })
	default:
		return nil
	}
}

func firstString(raw jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// --- RBAC middleware helpers ---

// RequireAdminForWrites пропускает безопасные методы (GET, HEAD, OPTIONS)
// любому аутентифицированному пользователю, остальные - только
// администратору. Должен использоваться ПОСЛЕ JWTAuth.Middleware().
func RequireAdminForWrites() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				apierrors.Unauthorized(w, "Отсутствуют claims в контексте")
				return
			}
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
			default:
				if !claims.Admin {
					apierrors.Forbidden(w, "Недостаточно прав: требуется роль администратора")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Context helpers ---

// ClaimsFromContext извлекает AuthClaims из контекста запроса.
// Возвращает nil, если claims не найдены.
func ClaimsFromContext(ctx context.Context) *AuthClaims {
	claims, _ := ctx.Value(ContextKeyClaims).(*AuthClaims)
	return claims
}

// UsernameFromContext возвращает имя пользователя или пустую строку,
// если аутентификация отключена.
func UsernameFromContext(ctx context.Context) string {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return ""
	}
	return claims.Username
}

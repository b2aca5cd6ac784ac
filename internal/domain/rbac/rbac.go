// Пакет rbac - определение прав администратора по ролям из JWT.
// Роли backend: ROLE_ADMIN (изменяющие операции) и ROLE_USER (только чтение).
// Префикс ROLE_ необязателен: "admin" и "ROLE_ADMIN" эквивалентны.
package rbac

import "strings"

// Роли в порядке возрастания привилегий.
const (
	RoleUser  = "ROLE_USER"
	RoleAdmin = "ROLE_ADMIN"
)

// roleWeight - вес роли для сравнения.
var roleWeight = map[string]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

// Normalize приводит роль к каноническому виду ROLE_XXX.
func Normalize(role string) string {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return ""
	}
	if !strings.HasPrefix(role, "ROLE_") {
		role = "ROLE_" + role
	}
	return role
}

// HighestRole возвращает максимальную известную роль из набора.
// Неизвестные роли игнорируются; если известных нет - пустая строка.
func HighestRole(roles []string) string {
	highest := ""
	for _, r := range roles {
		r = Normalize(r)
		if roleWeight[r] > roleWeight[highest] {
			highest = r
		}
	}
	return highest
}

// HasAnyRole проверяет, есть ли среди ролей пользователя хотя бы одна
// из разрешённых. Сравнение после нормализации.
func HasAnyRole(userRoles, allowed []string) bool {
	allowedSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowedSet[Normalize(a)] = true
	}
	for _, r := range userRoles {
		if allowedSet[Normalize(r)] {
			return true
		}
	}
	return false
}

// IsValidRole проверяет, является ли строка допустимой ролью backend.
func IsValidRole(role string) bool {
	_, ok := roleWeight[role]
	return ok
}

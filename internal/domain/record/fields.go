package record

// userOwnedFields поля, которые заполняет сам пользователь и которые не должны теряться
// при слиянии с серверной копией
var userOwnedFields = map[Table][]string{
	TableContacts:  {"notes", "tags", "is_blocked"},
	TableGroups:    {"notes", "tags"},
	TableTemplates: {"tags"},
}

// UserOwnedFields возвращает JSON-имена пользовательских полей таблицы
func UserOwnedFields(t Table) []string {
	return userOwnedFields[t]
}

// IsEmptyValue сообщает, оставила ли сторона поле пустым
func IsEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case bool:
		return !x
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	case float64:
		return x == 0
	}
	return false
}

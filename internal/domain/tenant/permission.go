package tenant

import "bizsync/internal/domain/record"

// staffAllowed действия, разрешенные сотруднику; владелец проходит любую проверку
var staffAllowed = map[Action]map[string]bool{
	ActionRead: tables(
		record.TableContacts, record.TableGroups, record.TableTemplates,
		record.TableAssets, record.TableActivityLogs, record.TableQuotas, record.TableProfiles,
	),
	ActionCreate: tables(
		record.TableContacts, record.TableGroups, record.TableTemplates,
		record.TableAssets, record.TableActivityLogs,
	),
	ActionUpdate: tables(
		record.TableContacts, record.TableGroups, record.TableTemplates, record.TableAssets,
	),
	ActionReserve: tables(record.TableQuotas),
}

func tables(ts ...record.Table) map[string]bool {
	out := make(map[string]bool, len(ts))
	for _, t := range ts {
		out[string(t)] = true
	}
	return out
}

func allowed(role Role, action Action, resource string) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleStaff:
		return staffAllowed[action][resource]
	default:
		return false
	}
}

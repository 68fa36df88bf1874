package record

import (
	"encoding/json"
	"fmt"
)

// Encode превращает типизированную запись в хранимую форму
func Encode(r Record) (Entry, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode %s record: %w", r.Table(), err)
	}

	return Entry{
		Table:    r.Table(),
		ID:       r.RecordID(),
		Envelope: *r.Meta(),
		Data:     data,
	}, nil
}

// Decode восстанавливает типизированную запись по таблице
func Decode(e Entry) (Record, error) {
	switch e.Table {
	case TableContacts:
		return decodeAs[Contact](e)
	case TableGroups:
		return decodeAs[Group](e)
	case TableTemplates:
		return decodeAs[Template](e)
	case TableAssets:
		return decodeAs[Asset](e)
	case TableActivityLogs:
		return decodeAs[ActivityLog](e)
	case TableQuotas:
		return decodeAs[QuotaRecord](e)
	case TableProfiles:
		return decodeAs[Profile](e)
	case TablePayments:
		return decodeAs[Payment](e)
	case TableSessions:
		return decodeAs[SessionRecord](e)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, string(e.Table))
	}
}

func decodeAs[T any, P interface {
	*T
	Record
}](e Entry) (Record, error) {
	p := P(new(T))
	if err := json.Unmarshal(e.Data, p); err != nil {
		return nil, fmt.Errorf("%w: decode %s/%s: %v", ErrInvalidRecord, e.Table, e.ID, err)
	}
	if p.RecordID() != e.ID {
		return nil, fmt.Errorf("%w: %s/%s carries id %q", ErrIDMismatch, e.Table, e.ID, p.RecordID())
	}

	*p.Meta() = e.Envelope
	return p, nil
}

// Fields разбирает данные записи в плоскую карту полей
func (e Entry) Fields() (map[string]any, error) {
	fields := make(map[string]any)
	if len(e.Data) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(e.Data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %s/%s: %v", ErrInvalidRecord, e.Table, e.ID, err)
	}
	return fields, nil
}

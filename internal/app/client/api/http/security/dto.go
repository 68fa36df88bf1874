package security

import "bizsync/internal/domain/tenant"

type auditInput struct {
	Limit  int    `query:"limit" minimum:"1" maximum:"1000" default:"100"`
	Prefix string `query:"prefix" doc:"Event type prefix, e.g. session_"`
}

type auditOutput struct {
	Body AuditResponse
}

type AuditResponse struct {
	Events []tenant.Event `json:"events"`
}

type whoamiInput struct{}

type whoamiOutput struct {
	Body tenant.User
}

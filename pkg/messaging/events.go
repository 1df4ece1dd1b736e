package messaging

import (
	"context"
	"strings"
)

// SubjectPrefix roots every subject the service publishes on
const SubjectPrefix = "assetdao"

// Subject maps an audit kind such as "proposal.voted" to "assetdao.proposal.voted".
func Subject(kind string) string {
	kind = strings.Trim(kind, ".")
	if kind == "" {
		return SubjectPrefix + ".unknown"
	}
	return SubjectPrefix + "." + kind
}

// Publisher is anything that can publish a JSON payload to a subject.
// *Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// NopPublisher drops everything; used when no broker is configured.
type NopPublisher struct{}

// Publish does nothing
func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }

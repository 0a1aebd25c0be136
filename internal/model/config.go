package model

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ConfigError reports a missing or invalid configuration value. It is fatal
// at startup.
type ConfigError struct {
	Owner string
	Msg   string
}

func (e *ConfigError) Error() string {
	return "config error - " + e.Owner + ": " + e.Msg
}

// Property names stored per owner in the collector_config table.
const (
	PropQueueKind   = "queue_kind"
	PropConsumer    = "consumer"
	PropDBDriver    = "db_driver"
	PropQueueURL    = "queue_url"
	PropCommand     = "store_command"
	PropNATSURL     = "nats_url"
	PropStream      = "stream"
	PropFetchWait   = "fetch_wait"
	PropEndpointURL = "endpoint_url"
	PropTokenURL    = "token_url"
	PropUser        = "user"
	PropPassword    = "password"
	PropTimeout     = "timeout"
)

// DefaultFetchWait bounds how long a jetstream origin waits for the next message.
const DefaultFetchWait = 2 * time.Second

// OriginFromProperties builds an origin from its stored properties.
func OriginFromProperties(id int64, name string, order int, targetID int64, props map[string]string) (*Origin, error) {
	owner := "origin " + name
	q := QueueConfig{
		Kind:     QueueKind(props[PropQueueKind]),
		Consumer: props[PropConsumer],
	}
	if q.Kind == "" {
		q.Kind = QueueSQL
	}

	var required []string
	switch q.Kind {
	case QueueSQL:
		q.Driver = props[PropDBDriver]
		q.DSN = props[PropQueueURL]
		q.Command = props[PropCommand]
		required = []string{PropDBDriver, PropQueueURL, PropCommand, PropConsumer}
	case QueueJetStream:
		q.NATSURL = props[PropNATSURL]
		q.Stream = props[PropStream]
		q.FetchWait = DefaultFetchWait
		if s := props[PropFetchWait]; s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				return nil, &ConfigError{Owner: owner, Msg: fmt.Sprintf("invalid %s %q", PropFetchWait, s)}
			}
			q.FetchWait = d
		}
		required = []string{PropNATSURL, PropStream, PropConsumer}
	default:
		return nil, &ConfigError{Owner: owner, Msg: fmt.Sprintf("unknown %s %q", PropQueueKind, q.Kind)}
	}
	if missing := missingProps(props, required); len(missing) > 0 {
		return nil, &ConfigError{Owner: owner, Msg: "required property missing: " + strings.Join(missing, ", ")}
	}

	return &Origin{ID: id, Name: name, GroupOrder: order, TargetID: targetID, Queue: q}, nil
}

// TargetFromProperties builds a target from its stored properties. The
// timeout property is expressed in milliseconds.
func TargetFromProperties(id int64, name string, props map[string]string) (*Target, error) {
	owner := "target " + name
	required := []string{PropEndpointURL, PropTokenURL, PropUser, PropPassword, PropTimeout}
	if missing := missingProps(props, required); len(missing) > 0 {
		return nil, &ConfigError{Owner: owner, Msg: "required property missing: " + strings.Join(missing, ", ")}
	}

	ms, err := strconv.Atoi(props[PropTimeout])
	if err != nil || ms <= 0 {
		return nil, &ConfigError{Owner: owner, Msg: fmt.Sprintf("invalid %s %q", PropTimeout, props[PropTimeout])}
	}
	for _, key := range []string{PropEndpointURL, PropTokenURL} {
		u, err := url.Parse(props[key])
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, &ConfigError{Owner: owner, Msg: fmt.Sprintf("invalid %s %q", key, props[key])}
		}
	}

	return &Target{
		ID:          id,
		Name:        name,
		EndpointURL: props[PropEndpointURL],
		TokenURL:    props[PropTokenURL],
		User:        props[PropUser],
		Password:    props[PropPassword],
		Timeout:     time.Duration(ms) * time.Millisecond,
	}, nil
}

func missingProps(props map[string]string, keys []string) []string {
	var missing []string
	for _, k := range keys {
		if props[k] == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

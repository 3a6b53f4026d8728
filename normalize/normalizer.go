package normalize

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xraph/convene/source"
)

// Mapper converts one provider's payload into a NormalizedEvent. Mappers do
// not validate required fields; the Normalizer does.
type Mapper interface {
	Provider() source.Provider
	Map(raw []byte) (*NormalizedEvent, error)
}

// Normalizer dispatches raw payloads to the mapper of their source's provider.
type Normalizer struct {
	mappers map[source.Provider]Mapper
	shapes  *shapeValidator
}

// New returns a Normalizer with the built-in provider mappers registered.
func New() *Normalizer {
	n := &Normalizer{
		mappers: make(map[source.Provider]Mapper),
		shapes:  newShapeValidator(),
	}
	n.Register(eventbriteMapper{})
	n.Register(facebookMapper{})
	n.Register(meetupMapper{})
	n.Register(genericMapper{})
	return n
}

// Register adds or replaces the mapper for its provider.
func (n *Normalizer) Register(m Mapper) {
	n.mappers[m.Provider()] = m
}

// Normalize maps raw into a NormalizedEvent attributed to src. Unknown
// providers fall back to the generic mapper.
func (n *Normalizer) Normalize(src *source.EventSource, raw []byte) (*NormalizedEvent, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrInvalidPayload)
	}

	provider := src.Provider
	m, ok := n.mappers[provider]
	if !ok {
		provider = source.ProviderGeneric
		m = n.mappers[provider]
	}
	if err := n.shapes.Validate(provider, raw); err != nil {
		return nil, err
	}

	evt, err := m.Map(raw)
	if err != nil {
		return nil, err
	}
	if err := evt.finish(); err != nil {
		return nil, err
	}
	evt.SourceID = src.ID
	evt.Provider = src.Provider
	evt.RawPayload = append(json.RawMessage(nil), raw...)
	return evt, nil
}

// Unwrap returns the inner object of an {"event": {...}} envelope, or raw
// unchanged when there is no envelope.
func Unwrap(raw []byte) []byte {
	var env struct {
		Event json.RawMessage `json:"event"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return raw
	}
	inner := bytes.TrimSpace(env.Event)
	if len(inner) > 0 && inner[0] == '{' {
		return inner
	}
	return raw
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package vrage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
)

// envelope is the wrapper every remote API response arrives in.
type envelope struct {
	Data json.RawMessage `json:"data"`
	Meta Meta            `json:"meta"`
}

// Meta carries response metadata from the remote API.
type Meta struct {
	APIVersion string  `json:"apiVersion"`
	QueryTime  float64 `json:"queryTime"` // milliseconds
}

// Player is a connected player as reported by the session players endpoint.
// Identity is the SteamID; display names and faction tags can change
// between polls without the player being a different person.
type Player struct {
	SteamID      uint64 `json:"SteamID"`
	DisplayName  string `json:"DisplayName"`
	FactionName  string `json:"FactionName"`
	FactionTag   string `json:"FactionTag"`
	PromoteLevel int    `json:"PromoteLevel"`
	Ping         int    `json:"Ping"`
}

// ChatMessage is one in-game chat row. Timestamp is an opaque counter
// assigned by the remote server, not wall-clock epoch seconds; it is only
// meaningful for ordering and as a polling watermark.
type ChatMessage struct {
	SteamID     uint64 `json:"SteamID"`
	DisplayName string `json:"DisplayName"`
	Content     string `json:"Content"`
	Timestamp   int64  `json:"Timestamp"`
}

// ServerInfo is the dedicated server's self-reported state.
type ServerInfo struct {
	ServerName        string  `json:"ServerName"`
	WorldName         string  `json:"WorldName"`
	Players           int     `json:"Players"`
	SimSpeed          float64 `json:"SimSpeed"`
	SimulationCpuLoad float64 `json:"SimulationCpuLoad"`
	TotalTime         int64   `json:"TotalTime"`
	UsedPCU           int     `json:"UsedPCU"`
	Version           string  `json:"Version"`
	Game              string  `json:"Game"`
	IsReady           bool    `json:"IsReady"`

	// QueryTimeMS comes from the response meta, not the payload.
	QueryTimeMS float64 `json:"-"`
}

// Asteroid is a voxel asteroid entity.
type Asteroid struct {
	DisplayName string `json:"DisplayName"`
	EntityID    int64  `json:"EntityId"`
}

// Planet is a planet entity.
type Planet struct {
	DisplayName string `json:"DisplayName"`
	EntityID    int64  `json:"EntityId"`
}

// FloatingObject is loose debris or a dropped item in the world.
type FloatingObject struct {
	DisplayName      string  `json:"DisplayName"`
	EntityID         int64   `json:"EntityId"`
	Kind             string  `json:"Kind"`
	Mass             float64 `json:"Mass"`
	LinearSpeed      float64 `json:"LinearSpeed"`
	DistanceToPlayer float64 `json:"DistanceToPlayer"`
}

// Grid is a ship or station.
type Grid struct {
	DisplayName      string  `json:"DisplayName"`
	EntityID         int64   `json:"EntityId"`
	GridSize         string  `json:"GridSize"`
	BlocksCount      int     `json:"BlocksCount"`
	Mass             float64 `json:"Mass"`
	LinearSpeed      float64 `json:"LinearSpeed"`
	OwnerSteamID     uint64  `json:"OwnerSteamID"`
	OwnerDisplayName string  `json:"OwnerDisplayName"`
	IsPowered        bool    `json:"IsPowered"`
}

var (
	knownMu     sync.Mutex
	knownFields = map[reflect.Type]map[string]struct{}{}
)

// fieldSet returns the recognized JSON keys for a struct type, derived
// from its json tags and cached per type.
func fieldSet(t reflect.Type) map[string]struct{} {
	knownMu.Lock()
	defer knownMu.Unlock()

	if set, ok := knownFields[t]; ok {
		return set
	}
	set := make(map[string]struct{}, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		name, _, _ := strings.Cut(tag, ",")
		if name == "" || name == "-" {
			continue
		}
		set[name] = struct{}{}
	}
	knownFields[t] = set
	return set
}

// decodeChecked unmarshals a JSON object into v, logging a warning for
// every payload key that does not map to a field of v. Unknown keys are
// schema drift in the remote API, an early warning rather than an error:
// the recognized fields still decode and the call succeeds.
func decodeChecked(log *slog.Logger, path string, raw json.RawMessage, v any) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	set := fieldSet(reflect.TypeOf(v).Elem())
	for key := range fields {
		if _, ok := set[key]; !ok {
			log.Warn("unrecognized field in remote response", "path", path, "field", key)
		}
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// decodeCheckedList applies decodeChecked to every element of a JSON array.
// A missing array decodes as empty.
func decodeCheckedList[T any](log *slog.Logger, path string, raw json.RawMessage, out *[]T) error {
	if len(raw) == 0 {
		*out = nil
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	list := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := decodeChecked(log, path, item, &v); err != nil {
			return err
		}
		list = append(list, v)
	}
	*out = list
	return nil
}

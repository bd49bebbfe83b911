package media

import (
	"errors"
	"fmt"
	"strings"

	"production-dashboard/models"
)

var (
	ErrUnavailable = errors.New("media unavailable")
	ErrInvalidKey  = errors.New("invalid media key")
)

type Kind string

const (
	KindMockup    Kind = "mockup"
	KindPrintFile Kind = "print_file"
)

var Kinds = []Kind{KindMockup, KindPrintFile}

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindMockup, KindPrintFile:
		return k, nil
	case "":
		return KindMockup, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidKey, raw)
}

type Key struct {
	OrderID  int64 `json:"order_id"`
	DesignID int64 `json:"design_id"`
	Kind     Kind  `json:"kind"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d:%s", k.OrderID, k.DesignID, k.Kind)
}

func (k Key) Validate() error {
	if k.OrderID <= 0 || k.DesignID <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidKey, k)
	}
	if k.Kind != KindMockup && k.Kind != KindPrintFile {
		return fmt.Errorf("%w: %s", ErrInvalidKey, k)
	}
	return nil
}

// References returns the raw references of the given kind on a design.
func References(d models.OrderDesign, kind Kind) []string {
	if kind == KindPrintFile {
		return d.PrintFiles
	}
	return d.MockupImages
}

// StrippedKeys lists the media keys of an order whose references were
// stripped from a bulk response.
func StrippedKeys(o models.Order) []Key {
	var keys []Key
	for _, d := range o.Designs {
		for _, kind := range Kinds {
			if models.HasExcludedMedia(References(d, kind)) {
				keys = append(keys, Key{OrderID: o.ID, DesignID: d.ID, Kind: kind})
			}
		}
	}
	return keys
}

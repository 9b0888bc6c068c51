package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"fmristage/internal/runspec"
)

// MarkerFileName identifies directories created by fmristage.
const MarkerFileName = ".fmristage-run"

// Marker is the content of the marker file.
type Marker struct {
	Subject   string    `toml:"subject"`
	Session   string    `toml:"session,omitempty"`
	RunID     string    `toml:"run_id"`
	CreatedAt time.Time `toml:"created_at"`
}

func markerFor(run runspec.RunConfig) Marker {
	return Marker{
		Subject:   run.Subject,
		Session:   run.Session,
		RunID:     run.RunID,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// Matches reports whether the marker was written for the given run.
func (m Marker) Matches(run runspec.RunConfig) bool {
	return m.Subject == run.Subject && m.Session == run.Session && m.RunID == run.RunID
}

func writeMarker(root string, marker Marker) error {
	data, err := toml.Marshal(marker)
	if err != nil {
		return fmt.Errorf("encode marker: %w", err)
	}
	return os.WriteFile(filepath.Join(root, MarkerFileName), data, 0o644)
}

// ReadMarker loads the marker from a workspace root. A missing marker returns
// an error satisfying errors.Is(err, os.ErrNotExist).
func ReadMarker(root string) (Marker, error) {
	data, err := os.ReadFile(filepath.Join(root, MarkerFileName))
	if err != nil {
		return Marker{}, err
	}
	var marker Marker
	if err := toml.Unmarshal(data, &marker); err != nil {
		return Marker{}, fmt.Errorf("decode marker: %w", err)
	}
	if marker.Subject == "" || marker.RunID == "" {
		return Marker{}, errors.New("decode marker: incomplete marker")
	}
	return marker, nil
}

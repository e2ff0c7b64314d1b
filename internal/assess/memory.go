package assess

import (
	"errors"
	"fmt"

	"github.com/prometheus/procfs"
)

// MemorySampler reports available system memory. The batch orchestrator and
// the runner treat it as advisory: sampling failures never stop a fire.
type MemorySampler interface {
	AvailableBytes() (uint64, error)
}

type procSampler struct {
	fs procfs.FS
}

// NewMemorySampler reads available memory from /proc. Callers treat a
// construction error as no memory visibility and run without the guard.
func NewMemorySampler() (MemorySampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("opening procfs: %w", err)
	}
	return &procSampler{fs: fs}, nil
}

func (p *procSampler) AvailableBytes() (uint64, error) {
	mi, err := p.fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("reading meminfo: %w", err)
	}
	if mi.MemAvailableBytes != nil {
		return *mi.MemAvailableBytes, nil
	}
	if mi.MemAvailable != nil {
		return *mi.MemAvailable * 1024, nil
	}
	return 0, errors.New("meminfo missing MemAvailable")
}

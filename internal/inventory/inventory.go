// Package inventory walks the extracted fire folders and classifies their
// contents by role (perimeter, dNBR, DEM, metadata).
package inventory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// File roles recognized by the classifier.
const (
	RolePerimeter = "perimeter"
	RoleDNBR      = "dnbr"
	RoleDEM       = "dem"
	RoleMetadata  = "metadata"
)

// Conflict records a role with more than one candidate file. The role stays
// unbound; binding an arbitrary winner hides real data problems.
type Conflict struct {
	Role       string
	Candidates []string
}

// Fire is the classified snapshot of one fire folder.
type Fire struct {
	ID            string
	Year          string
	Name          string
	Folder        string
	SizeMB        float64
	PerimeterPath string
	DNBRPath      string
	DEMPath       string
	MetadataPath  string
	Conflicts     []Conflict
}

func (f *Fire) HasPerimeter() bool { return f.PerimeterPath != "" }
func (f *Fire) HasDNBR() bool      { return f.DNBRPath != "" }
func (f *Fire) HasDEM() bool       { return f.DEMPath != "" }
func (f *Fire) HasMetadata() bool  { return f.MetadataPath != "" }

// Complete reports whether the fire carries everything the assessment needs.
func (f *Fire) Complete() bool {
	return f.HasPerimeter() && f.HasDNBR() && f.HasDEM()
}

type Inventory map[string]*Fire

// SortedIDs returns the fire identifiers in lexical order.
func (inv Inventory) SortedIDs() []string {
	ids := make([]string, 0, len(inv))
	for id := range inv {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type Organizer struct {
	root string
}

func NewOrganizer(root string) *Organizer {
	return &Organizer{root: root}
}

// Scan inventories every fire folder under the selected year folders. A nil
// or empty years slice selects every first-level directory. Hidden folders
// are skipped. The scan is read-only and idempotent.
func (o *Organizer) Scan(ctx context.Context, years []string) (Inventory, error) {
	yearDirs, err := o.yearDirs(years)
	if err != nil {
		return nil, err
	}

	inv := Inventory{}
	for _, yearDir := range yearDirs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		year := filepath.Base(yearDir)
		entries, err := os.ReadDir(yearDir)
		if err != nil {
			return nil, fmt.Errorf("reading year folder %s: %w", yearDir, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}

			folder := filepath.Join(yearDir, entry.Name())
			fire, err := classifyFolder(folder)
			if err != nil {
				return nil, err
			}
			fire.ID = fmt.Sprintf("%s_%s", year, entry.Name())
			fire.Year = year
			fire.Name = entry.Name()

			for _, conflict := range fire.Conflicts {
				zap.S().Named("inventory").Warnw("ambiguous file role",
					"fire", fire.ID,
					"role", conflict.Role,
					"candidates", conflict.Candidates,
				)
			}

			inv[fire.ID] = fire
		}
	}

	zap.S().Named("inventory").Infow("inventoried fires", "count", len(inv))
	return inv, nil
}

func (o *Organizer) yearDirs(years []string) ([]string, error) {
	if len(years) > 0 {
		var dirs []string
		for _, year := range years {
			dir := filepath.Join(o.root, year)
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				dirs = append(dirs, dir)
			}
		}
		return dirs, nil
	}

	entries, err := os.ReadDir(o.root)
	if err != nil {
		return nil, fmt.Errorf("reading root folder: %w", err)
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(o.root, entry.Name()))
		}
	}
	return dirs, nil
}

// classifyFolder scans all descendant files, accumulating candidates per role
// and the folder size. Exactly one candidate binds a role; more than one
// records a conflict and leaves the role unbound.
func classifyFolder(folder string) (*Fire, error) {
	candidates := map[string][]string{}
	var totalBytes int64

	err := filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		totalBytes += info.Size()

		if role, ok := classify(d.Name()); ok {
			candidates[role] = append(candidates[role], path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", folder, err)
	}

	fire := &Fire{
		Folder: folder,
		SizeMB: float64(totalBytes) / (1024 * 1024),
	}
	for _, role := range []string{RolePerimeter, RoleDNBR, RoleDEM, RoleMetadata} {
		paths := candidates[role]
		switch {
		case len(paths) == 1:
			fire.bind(role, paths[0])
		case len(paths) > 1:
			fire.Conflicts = append(fire.Conflicts, Conflict{Role: role, Candidates: paths})
		}
	}
	return fire, nil
}

// classify maps a file name to its role. The order matters: a name matching
// an earlier rule is never considered for later ones.
func classify(name string) (string, bool) {
	lower := strings.ToLower(name)
	ext := filepath.Ext(name)

	switch {
	case strings.Contains(lower, "burn_bndy") && ext == ".shp":
		return RolePerimeter, true
	case strings.Contains(lower, "dnbr") && ext == ".tif":
		return RoleDNBR, true
	case strings.Contains(lower, "dem") && ext == ".tif":
		return RoleDEM, true
	case strings.Contains(lower, "metadata") && ext == ".xml":
		return RoleMetadata, true
	}
	return "", false
}

func (f *Fire) bind(role, path string) {
	switch role {
	case RolePerimeter:
		f.PerimeterPath = path
	case RoleDNBR:
		f.DNBRPath = path
	case RoleDEM:
		f.DEMPath = path
	case RoleMetadata:
		f.MetadataPath = path
	}
}

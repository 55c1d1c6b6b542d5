package results

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/scylladb/argus-sub001/internal/model"
)

// mainPackageName picks the package whose version names the release a run
// belongs to: the table's configured SUT package when set, otherwise the
// package that appears most often across the runs (first encountered wins
// ties).
func mainPackageName(sutPackage string, order []uuid.UUID, packages map[uuid.UUID][]model.PackageVersion) string {
	if sutPackage != "" {
		return sutPackage
	}

	counts := map[string]int{}
	var firstSeen []string
	for _, runID := range order {
		for _, pkg := range packages[runID] {
			if counts[pkg.Name] == 0 {
				firstSeen = append(firstSeen, pkg.Name)
			}
			counts[pkg.Name]++
		}
	}

	best := ""
	for _, name := range firstSeen {
		if best == "" || counts[name] > counts[best] {
			best = name
		}
	}
	return best
}

// releaseBucket maps a package version to the release series it belongs to:
// dev builds (a "~" in the version) bucket by the suffix after the tilde,
// released builds by "major.minor".
func releaseBucket(version string) string {
	if version == "" {
		return ""
	}
	if i := strings.Index(version, "~"); i >= 0 {
		return version[i+1:]
	}
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return version
	}
	return parts[0] + "." + parts[1]
}

// packageVersionOf returns the version of the named package in a run's
// package list, or "".
func packageVersionOf(packages []model.PackageVersion, name string) string {
	for _, pkg := range packages {
		if pkg.Name == name {
			return pkg.Version
		}
	}
	return ""
}

// packageChanges renders the dependency delta between two consecutive runs
// of a series. The main package is always listed with its current version;
// every other package appears only when its version differs from the
// previous run.
func packageChanges(prev, curr []model.PackageVersion, mainPkg string) []string {
	var changes []string

	if v := packageVersionOf(curr, mainPkg); v != "" {
		changes = append(changes, fmt.Sprintf("%s: %s", mainPkg, v))
	}

	prevVersions := map[string]string{}
	for _, pkg := range prev {
		prevVersions[pkg.Name] = pkg.Version
	}

	for _, pkg := range curr {
		if pkg.Name == mainPkg {
			continue
		}
		old, existed := prevVersions[pkg.Name]
		switch {
		case !existed:
			changes = append(changes, fmt.Sprintf("%s: None -> %s", pkg.Name, pkg.Version))
		case old != pkg.Version:
			if pkg.Date != "" {
				changes = append(changes, fmt.Sprintf("%s: %s -> %s (%s)", pkg.Name, old, pkg.Version, pkg.Date))
			} else {
				changes = append(changes, fmt.Sprintf("%s: %s -> %s", pkg.Name, old, pkg.Version))
			}
		}
	}

	return changes
}

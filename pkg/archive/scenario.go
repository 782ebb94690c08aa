package archive

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultScenario is used when an archive carries a single flat result set
// rather than per-scenario out_* directories.
const DefaultScenario = "default"

// canonicalOrder lists the scenario names the shift optimizer emits, in the
// order the dashboard presents them. Unknown out_* directories sort after.
var canonicalOrder = []string{
	"out_mean_based",
	"out_median_based",
	"out_p25_based",
}

// DiscoverScenarios lists the scenario names available under dir. An archive
// laid out with top-level out_* directories yields one scenario per directory;
// anything else is treated as a single DefaultScenario rooted at dir itself.
func DiscoverScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var found []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if strings.HasPrefix(strings.ToLower(e.Name()), "out_") {
			found = append(found, e.Name())
		}
	}
	if len(found) == 0 {
		return []string{DefaultScenario}, nil
	}

	sort.Slice(found, func(i, j int) bool {
		ri, rj := canonicalRank(found[i]), canonicalRank(found[j])
		if ri != rj {
			return ri < rj
		}
		return found[i] < found[j]
	})
	return found, nil
}

// ScenarioNames derives scenario names from archive member paths without
// extracting, for offline validation. Ordering matches DiscoverScenarios.
func ScenarioNames(members []string) []string {
	seen := make(map[string]bool)
	var found []string
	for _, name := range members {
		name = strings.ReplaceAll(name, `\`, "/")
		top, _, ok := strings.Cut(name, "/")
		if !ok || !strings.HasPrefix(strings.ToLower(top), "out_") || seen[top] {
			continue
		}
		seen[top] = true
		found = append(found, top)
	}
	if len(found) == 0 {
		return []string{DefaultScenario}
	}

	sort.Slice(found, func(i, j int) bool {
		ri, rj := canonicalRank(found[i]), canonicalRank(found[j])
		if ri != rj {
			return ri < rj
		}
		return found[i] < found[j]
	})
	return found
}

func canonicalRank(name string) int {
	lower := strings.ToLower(name)
	for i, n := range canonicalOrder {
		if lower == n {
			return i
		}
	}
	return len(canonicalOrder)
}

// ScenarioDir returns the directory holding a scenario's artifacts.
func ScenarioDir(root, scenario string) string {
	if scenario == "" || scenario == DefaultScenario {
		return root
	}
	return filepath.Join(root, scenario)
}

// DisplayName maps a scenario directory name to a human label.
func DisplayName(scenario string) string {
	switch strings.ToLower(scenario) {
	case "out_mean_based":
		return "Mean based"
	case "out_median_based":
		return "Median based"
	case "out_p25_based":
		return "P25 based"
	case DefaultScenario:
		return "Default"
	default:
		return scenario
	}
}

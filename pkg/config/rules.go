// pkg/config/rules.go
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/meridian-data/etl-runner/pkg/model"
	"github.com/meridian-data/etl-runner/pkg/rules"
)

// LoadRules reads the ordered rule battery from a JSON file. The file holds
// an array of {"field", "rule", "params"} objects; evaluation order follows
// array order.
func LoadRules(path string) ([]rules.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ConfigurationError{
			Component: "rules",
			Reason:    fmt.Sprintf("cannot read rule file %s: %v", path, err),
		}
	}

	var configs []rules.Config
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, &model.ConfigurationError{
			Component: "rules",
			Reason:    fmt.Sprintf("cannot parse rule file %s: %v", path, err),
		}
	}

	return configs, nil
}

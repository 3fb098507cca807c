package generator

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/restock-pipeline/pkg/errors"
)

type weightedCount struct {
	count  int
	weight int
}

// itemDistribution picks how many lines an order has.
type itemDistribution struct {
	choices []weightedCount
	total   int
}

// parseWeights reads "count:weight,count:weight,...".
func parseWeights(raw string) (itemDistribution, error) {
	var dist itemDistribution
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		countRaw, weightRaw, ok := strings.Cut(part, ":")
		if !ok {
			return itemDistribution{}, invalidWeights(raw, fmt.Errorf("entry %q is not count:weight", part))
		}
		count, err := strconv.Atoi(strings.TrimSpace(countRaw))
		if err != nil || count <= 0 {
			return itemDistribution{}, invalidWeights(raw, fmt.Errorf("count %q must be a positive integer", countRaw))
		}
		weight, err := strconv.Atoi(strings.TrimSpace(weightRaw))
		if err != nil || weight <= 0 {
			return itemDistribution{}, invalidWeights(raw, fmt.Errorf("weight %q must be a positive integer", weightRaw))
		}
		dist.choices = append(dist.choices, weightedCount{count: count, weight: weight})
		dist.total += weight
	}
	if len(dist.choices) == 0 {
		return itemDistribution{}, invalidWeights(raw, fmt.Errorf("no entries"))
	}
	return dist, nil
}

func invalidWeights(raw string, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item count weights").
		WithDetail("item_weights", raw)
}

func (d itemDistribution) pick(rng *rand.Rand) int {
	n := rng.Intn(d.total)
	for _, c := range d.choices {
		if n < c.weight {
			return c.count
		}
		n -= c.weight
	}
	return d.choices[len(d.choices)-1].count
}

// Package catalog は都市とエリアのカタログを提供する。
// 既定のカタログはバイナリに埋め込み、CITY_CATALOG_PATHで差し替えられる。
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/citadel/internal/model"
)

//go:embed cities.yaml
var defaultCities []byte

// Catalog は都市の一覧を保持する。読み込み後は変更しない。
type Catalog struct {
	cities []model.City
	byID   map[string]model.City
}

type document struct {
	Cities []model.City `yaml:"cities"`
}

// Load はpathのYAMLからカタログを読み込む。pathが空の場合は埋め込みのカタログを使う。
func Load(path string) (*Catalog, error) {
	data := defaultCities
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read city catalog: %w", err)
		}
		data = b
	}
	return Parse(data)
}

// Parse はYAMLからカタログを生成する。
// IDの重複や空のID・名前はエラーとする。
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse city catalog: %w", err)
	}
	if len(doc.Cities) == 0 {
		return nil, fmt.Errorf("city catalog is empty")
	}

	c := &Catalog{byID: make(map[string]model.City, len(doc.Cities))}
	for i, city := range doc.Cities {
		if city.ID == "" || city.Name == "" {
			return nil, fmt.Errorf("city #%d: id and name are required", i+1)
		}
		if _, dup := c.byID[city.ID]; dup {
			return nil, fmt.Errorf("duplicate city id %q", city.ID)
		}
		c.byID[city.ID] = city
		c.cities = append(c.cities, city)
	}
	return c, nil
}

// Cities は全都市を定義順に返す。
func (c *Catalog) Cities() []model.City {
	out := make([]model.City, len(c.cities))
	copy(out, c.cities)
	return out
}

// Selectable は選択可能な都市のみを返す。
func (c *Catalog) Selectable() []model.City {
	var out []model.City
	for _, city := range c.cities {
		if city.Selectable() {
			out = append(out, city)
		}
	}
	return out
}

// Find はIDまたは名前（大文字小文字を区別しない）で都市を探す。
func (c *Catalog) Find(idOrName string) (model.City, bool) {
	if city, ok := c.byID[idOrName]; ok {
		return city, true
	}
	for _, city := range c.cities {
		if strings.EqualFold(city.Name, idOrName) || strings.EqualFold(city.ID, idOrName) {
			return city, true
		}
	}
	return model.City{}, false
}

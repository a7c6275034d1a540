package model

// City は食事の開催地となる都市を表す。
type City struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	IsAvailable bool     `json:"isAvailable" yaml:"available"`
	ComingSoon  bool     `json:"comingSoon" yaml:"coming_soon"`
	Areas       []string `json:"areas,omitempty" yaml:"areas"`
}

// Selectable は選択してエリア選択に進めるかを返す。
func (c City) Selectable() bool {
	return c.IsAvailable && !c.ComingSoon
}

// HasArea は指定エリアがこの都市に含まれるかを返す。
// エリア一覧が空の場合は制限なしとして扱う。
func (c City) HasArea(area string) bool {
	if len(c.Areas) == 0 {
		return true
	}
	for _, a := range c.Areas {
		if a == area {
			return true
		}
	}
	return false
}

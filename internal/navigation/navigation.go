// Package navigation は最後に表示したセクションと選択中の都市を保存し、
// 再読み込み後に同じ位置から再開できるようにする。
package navigation

import (
	"context"
	"fmt"

	"github.com/hitoshi/citadel/internal/model"
	"github.com/hitoshi/citadel/internal/storage"
)

// Section はアプリのセクション。
type Section string

const (
	SectionHome          Section = "home"
	SectionEvents        Section = "events"
	SectionBookings      Section = "bookings"
	SectionProfile       Section = "profile"
	SectionLocation      Section = "location"
	SectionAreaSelection Section = "area-selection"
)

var sectionRoutes = map[Section]string{
	SectionHome:          RouteHome,
	SectionEvents:        RouteEvents,
	SectionBookings:      RouteBookings,
	SectionProfile:       RouteProfile,
	SectionLocation:      RouteLocation,
	SectionAreaSelection: RouteAreaSelection,
}

// Valid は定義済みのセクションかを返す。
func (s Section) Valid() bool {
	_, ok := sectionRoutes[s]
	return ok
}

// Persistable は再読み込み後の復元対象かを返す。
// 都市・エリア選択は一時的なサブフローのため対象外。
func (s Section) Persistable() bool {
	switch s {
	case SectionHome, SectionEvents, SectionBookings, SectionProfile:
		return true
	}
	return false
}

// Route はセクションの画面パスを返す。
func (s Section) Route() string {
	if r, ok := sectionRoutes[s]; ok {
		return r
	}
	return RouteHome
}

// navigation名前空間のキー
const (
	keySection             = "section"
	keySelectedCity        = "selectedCity"
	keyFirstVisitCompleted = "firstVisitCompleted"
)

// Snapshot は起動時に復元するナビゲーション状態。
type Snapshot struct {
	Section             Section
	SelectedCity        *model.City // 未選択の場合はnil
	FirstVisitCompleted bool
}

// Navigator はナビゲーション状態をStoreに読み書きする。
// 通常の画面遷移では消去せず、ログアウト時のみstorage.ClearAllで消える。
type Navigator struct {
	ns *storage.Namespace
}

// NewNavigator はNavigatorを生成する。
func NewNavigator(store storage.Store) *Navigator {
	return &Navigator{ns: storage.NewNamespace(store, storage.NamespaceNavigation)}
}

// Land はsectionを表示したことを記録する。
// 復元対象外のセクションは記録せずfalseを返す。
func (n *Navigator) Land(ctx context.Context, section Section) (bool, error) {
	if !section.Valid() {
		return false, fmt.Errorf("unknown section: %q", section)
	}
	if !section.Persistable() {
		return false, nil
	}
	if err := n.ns.SetString(ctx, keySection, string(section)); err != nil {
		return false, err
	}
	return true, nil
}

// SetSelectedCity は確定した都市を保存する。
func (n *Navigator) SetSelectedCity(ctx context.Context, city model.City) error {
	return n.ns.SetJSON(ctx, keySelectedCity, city)
}

// SelectedCity は確定済みの都市を返す。未選択の場合はnil。
func (n *Navigator) SelectedCity(ctx context.Context) (*model.City, error) {
	var city model.City
	ok, err := n.ns.GetJSON(ctx, keySelectedCity, &city)
	if err != nil || !ok {
		return nil, err
	}
	return &city, nil
}

// CompleteFirstVisit は初回訪問の案内を完了したことを記録する。
func (n *Navigator) CompleteFirstVisit(ctx context.Context) error {
	return n.ns.SetBool(ctx, keyFirstVisitCompleted, true)
}

// Restore は保存済みのナビゲーション状態を返す。
// 未保存や不正な値のセクションはホームとして扱う。
func (n *Navigator) Restore(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Section: SectionHome}

	section, ok, err := n.ns.GetString(ctx, keySection)
	if err != nil {
		return snap, err
	}
	if ok && Section(section).Persistable() {
		snap.Section = Section(section)
	}

	city, err := n.SelectedCity(ctx)
	if err != nil {
		return snap, err
	}
	snap.SelectedCity = city

	snap.FirstVisitCompleted, err = n.ns.GetBool(ctx, keyFirstVisitCompleted)
	if err != nil {
		return snap, err
	}
	return snap, nil
}

package query

import "strings"

// Key はキャッシュエントリを識別する文字列のタプル。
// 先頭要素がリソース名、以降がパラメータ（例: Key{"events", city, date, area}）。
type Key []string

// keySeparator はタプル要素に現れない区切り文字。
const keySeparator = "\x1f"

// String はマップのキーとして使う一意な文字列表現を返す。
func (k Key) String() string {
	return strings.Join(k, keySeparator)
}

// Resource はリソース名（先頭要素）を返す。
func (k Key) Resource() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// HasPrefix はprefixの全要素と先頭から一致するかを返す。
// 空のprefixは全キーに一致する。
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

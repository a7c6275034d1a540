// Package security はリレーの転送先検証と、APIから受け取った表示用テキストの無害化を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes は転送先として許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は転送先としてブロックされるネットワーク範囲。
// パッケージ初期化時に1回だけパースする。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		// プライベートIPアドレス (RFC 1918)
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		// ループバック
		"127.0.0.0/8",
		// リンクローカル（クラウドメタデータIPを含む）
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// UpstreamGuard はリレーが転送する先のバックエンドURLを検証し、
// そのホスト以外に接続しないHTTPトランスポートを生成する。
type UpstreamGuard struct {
	timeout time.Duration
}

// NewUpstreamGuard はUpstreamGuardを生成する。
func NewUpstreamGuard(timeout time.Duration) *UpstreamGuard {
	return &UpstreamGuard{timeout: timeout}
}

// ValidateUpstream はバックエンドURLを静的に検証し、パース済みのURLを返す。
// スキームはhttp/httpsのみ、ホストはプライベート・ループバック・リンクローカル以外に限る。
// DNS解決後のIPはNewTransportが生成するトランスポート側で検証される。
func (g *UpstreamGuard) ValidateUpstream(rawURL string) (*url.URL, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("empty upstream URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return nil, fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("empty host in upstream URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return nil, fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return parsed, nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return nil, fmt.Errorf("blocked host: %s", host)
	}
	return parsed, nil
}

// NewTransport はupstreamのホストとポートにのみ接続するトランスポートを返す。
// safeurlがダイアル時に解決後のIPアドレスも検証するため、DNS再バインディングも防ぐ。
func (g *UpstreamGuard) NewTransport(upstream *url.URL) http.RoundTripper {
	config := safeurl.GetConfigBuilder().
		SetTimeout(g.timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedHosts(upstream.Hostname()).
		SetAllowedPorts(upstreamPort(upstream)).
		Build()

	return safeurl.Client(config).Client.Transport
}

// upstreamPort はURLのポートを返す。省略時はスキームの既定ポート。
func upstreamPort(u *url.URL) int {
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	if strings.EqualFold(u.Scheme, "http") {
		return 80
	}
	return 443
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

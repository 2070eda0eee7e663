package fetcher

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// Guard はフェッチ先URLの安全性検証とHTTPクライアント生成を提供する。
// フェッチャーはこのインターフェース経由でクライアントを取得するため、
// テストでは検証なしの実装に差し替えられる。
type Guard interface {
	// Validate はURLの安全性を静的に検証する。危険なURLの場合はエラーを返す。
	Validate(rawURL string) error

	// NewClient はアウトバウンドフェッチ用のHTTPクライアントを生成する。
	NewClient(timeout time.Duration) *http.Client
}

// allowedSchemes はフィードURLとして許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks はフェッチ先として拒否されるネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	// プライベートIPアドレス (RFC 1918)
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	// ループバック (RFC 1122)
	"127.0.0.0/8",
	// リンクローカル (RFC 3927) - クラウドメタデータIP (169.254.169.254) を含む
	"169.254.0.0/16",
	// カレントネットワーク
	"0.0.0.0/8",
	// IPv6ループバック
	"::1/128",
	// IPv6リンクローカル
	"fe80::/10",
	// IPv6ユニークローカル
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []net.IPNet {
	networks := make([]net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		networks = append(networks, *network)
	}
	return networks
}

// SSRFGuard はsafeurlを使用したGuardの実装。
// ValidateはDNS解決を伴わない静的検証のみを行い、
// 解決後IPの最終検証はNewClientが生成するクライアントのダイヤル層が担うため、
// DNS再バインディング攻撃にも対応している。
type SSRFGuard struct{}

// NewSSRFGuard はSSRFGuardを生成する。
func NewSSRFGuard() *SSRFGuard {
	return &SSRFGuard{}
}

// NewClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlの設定により、プライベートIP、ループバック、リンクローカル、
// メタデータIPへのリクエストがダイヤル時にブロックされる。
func (g *SSRFGuard) NewClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// Validate はフェッチ前にURLの安全性を静的に検証する。
// スキーム、ホスト、IPアドレスを検査し、危険なURLの場合はエラーを返す。
func (g *SSRFGuard) Validate(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URLが空です")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("URLのパースに失敗しました: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !schemeAllowed(scheme) {
		return fmt.Errorf("許可されていないスキームです: %s", scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("ホストが空です: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if ipBlocked(ip) {
			return fmt.Errorf("ブロック対象のIPアドレスです: %s", ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("ブロック対象のホストです: %s", host)
	}

	return nil
}

func schemeAllowed(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

func ipBlocked(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ Guard = (*SSRFGuard)(nil)

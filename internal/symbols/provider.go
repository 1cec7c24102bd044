package symbols

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"liuops/internal/pkg/sliceutil"
)

// Provider 标的列表来源接口（回测表单的默认标的）。
type Provider interface {
	List(ctx context.Context) ([]string, error)
	Name() string
}

// 默认实现：静态列表
type DefaultProvider struct{ symbols []string }

func NewDefaultProvider(symbols []string) *DefaultProvider {
	return &DefaultProvider{symbols: sliceutil.Strings(symbols)}
}
func (p *DefaultProvider) Name() string { return "default" }
func (p *DefaultProvider) List(ctx context.Context) ([]string, error) {
	if len(p.symbols) == 0 {
		return nil, errors.New("默认标的列表为空")
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(p.symbols))
	for _, s := range p.symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("标准化后列表为空")
	}
	return out, nil
}

// Normalize 把逗号分隔的输入整理为去重后的大写列表。
func Normalize(csv string) ([]string, error) {
	return NewDefaultProvider(strings.Split(csv, ",")).List(context.Background())
}

// HTTP 实现：从自选股/观察列表服务拉取。支持两种返回格式：
// 1) ["AAPL","MSFT",...]
// 2) {"symbols": ["AAPL","MSFT",...]}
type HTTPProvider struct {
	URL    string
	Client *http.Client
}

func NewHTTPProvider(url string) *HTTPProvider {
	return &HTTPProvider{URL: url, Client: &http.Client{Timeout: 10 * time.Second}}
}
func (p *HTTPProvider) Name() string { return "http" }
func (p *HTTPProvider) List(ctx context.Context) ([]string, error) {
	if p.URL == "" {
		return nil, errors.New("watchlist 地址未配置")
	}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, errors.New("http 状态异常")
	}
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return NewDefaultProvider(arr).List(ctx)
	}
	var obj struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return NewDefaultProvider(obj.Symbols).List(ctx)
}

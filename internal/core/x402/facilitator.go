package x402

import (
	"context"
	"sort"
)

// Facilitator 汇总所有 (scheme, network) 的结算方案
// 目前只有 EVM 链上的 "exact"，按 scheme-network 路由
type Facilitator struct {
	schemes map[string]*EvmScheme
}

func NewFacilitator() *Facilitator {
	return &Facilitator{schemes: make(map[string]*EvmScheme)}
}

// Register 注册一条链的方案
func (f *Facilitator) Register(s *EvmScheme) {
	f.schemes[SchemeExact+"-"+s.Network()] = s
}

// Requirements 给 (金额, 收款人) 生成所有可接受的授权要求
func (f *Facilitator) Requirements(amountCents int64, payTo, resource, description string) RequirementsResponse {
	accepts := make([]PaymentRequirements, 0, len(f.schemes))
	for _, s := range f.schemes {
		accepts = append(accepts, s.Create(amountCents, payTo, resource, description)...)
	}
	sort.Slice(accepts, func(i, j int) bool {
		if accepts[i].Network != accepts[j].Network {
			return accepts[i].Network < accepts[j].Network
		}
		return accepts[i].Asset < accepts[j].Asset
	})

	return RequirementsResponse{
		X402Version: Version,
		Error:       "",
		Accepts:     accepts,
	}
}

// Settle 校验并结算一笔支付
// 返回 (tx哈希, 入账金额分, 代币符号, 链名, 错误)
func (f *Facilitator) Settle(ctx context.Context, req *PaymentRequest) (string, int64, string, string, *Error) {
	if req.PaymentPayload.X402Version != Version {
		return "", 0, "", "", NewError(KindInvalidVersion)
	}
	if req.PaymentPayload.Scheme != SchemeExact {
		return "", 0, "", "", NewError(KindInvalidScheme)
	}

	scheme, ok := f.schemes[req.PaymentPayload.Scheme+"-"+req.PaymentPayload.Network]
	if !ok {
		return "", 0, "", "", NewError(KindInvalidNetwork)
	}
	// payload 和 requirements 必须说的是同一条链
	if req.PaymentRequirements.Network != req.PaymentPayload.Network {
		return "", 0, "", "", NewError(KindInvalidRequirements)
	}

	tx, cents, symbol, kindErr := scheme.Settle(ctx, req)
	if kindErr != nil {
		return "", 0, "", "", kindErr
	}
	return tx, cents, symbol, req.PaymentPayload.Network, nil
}

// Verify 只校验不结算
func (f *Facilitator) Verify(ctx context.Context, req *PaymentRequest) *Error {
	if req.PaymentPayload.X402Version != Version {
		return NewError(KindInvalidVersion)
	}
	scheme, ok := f.schemes[req.PaymentPayload.Scheme+"-"+req.PaymentPayload.Network]
	if !ok {
		return NewError(KindUnsupportedScheme)
	}
	return scheme.Verify(ctx, req)
}

// Support 列出支持的方案和网络
func (f *Facilitator) Support() SupportResponse {
	networks := make([]string, 0, len(f.schemes))
	for _, s := range f.schemes {
		networks = append(networks, s.Network())
	}
	sort.Strings(networks)
	return SupportResponse{
		Schemes:  []string{SchemeExact},
		Networks: networks,
	}
}

// Discovery 可发现资源列表（网关本身不挂载 Bazaar 资源，返回空列表）
func (f *Facilitator) Discovery(limit, offset int) DiscoveryResponse {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return DiscoveryResponse{
		X402Version: Version,
		Items:       []DiscoveryItem{},
		Pagination:  Pagination{Limit: limit, Offset: offset, Total: 0},
	}
}

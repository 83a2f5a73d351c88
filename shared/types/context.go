// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package types

import "context"

type orgContextKey struct{}

// WithOrgContext returns a copy of ctx carrying oc.
func WithOrgContext(ctx context.Context, oc OrgContext) context.Context {
	return context.WithValue(ctx, orgContextKey{}, oc)
}

// OrgContextFrom returns the OrgContext stored in ctx, if any.
func OrgContextFrom(ctx context.Context) (OrgContext, bool) {
	oc, ok := ctx.Value(orgContextKey{}).(OrgContext)
	return oc, ok
}

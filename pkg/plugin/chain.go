package plugin

import (
	"context"
	"fmt"
	"reflect"

	"github.com/marmos91/dittocat/internal/logger"
)

// NameOf returns the plugin's name for logs: Name() when implemented,
// otherwise its Go type.
func NameOf(p any) string {
	if n, ok := p.(Named); ok && n.Name() != "" {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}

// RunSoftChain threads in through plugins in order.
//
// A StopProcessing error aborts the chain and is returned as is. Any other
// error, or a nil output, is logged and the plugin is skipped: the next
// plugin receives the last good value.
func RunSoftChain[P any, T any](ctx context.Context, chain string, plugins []P, in T, call func(context.Context, P, T) (T, error)) (T, error) {
	current := in
	for _, p := range plugins {
		if err := ctx.Err(); err != nil {
			return current, err
		}

		out, err := call(ctx, p, current)
		if err != nil {
			if IsStopProcessing(err) {
				return current, err
			}
			logger.Warn("%s plugin %s failed, skipping: %v", chain, NameOf(p), err)
			continue
		}
		if isNil(out) {
			logger.Warn("%s plugin %s returned nothing, skipping", chain, NameOf(p))
			continue
		}
		current = out
	}
	return current, nil
}

// RunHardChain is RunSoftChain where every failure aborts. The returned
// error names the plugin that failed and wraps its error.
func RunHardChain[P any, T any](ctx context.Context, chain string, plugins []P, in T, call func(context.Context, P, T) (T, error)) (T, error) {
	current := in
	for _, p := range plugins {
		if err := ctx.Err(); err != nil {
			return current, err
		}

		out, err := call(ctx, p, current)
		if err != nil {
			return current, fmt.Errorf("%s plugin %s: %w", chain, NameOf(p), err)
		}
		if isNil(out) {
			return current, fmt.Errorf("%s plugin %s returned nothing", chain, NameOf(p))
		}
		current = out
	}
	return current, nil
}

// RunPolicies collects the policy responses of every plugin. Any error
// aborts.
func RunPolicies(ctx context.Context, chain string, plugins []PolicyPlugin, call func(context.Context, PolicyPlugin) (PolicyResponse, error)) ([]PolicyResponse, error) {
	responses := make([]PolicyResponse, 0, len(plugins))
	for _, p := range plugins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := call(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("%s policy %s: %w", chain, NameOf(p), err)
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

// MergePolicies unions the item and operation maps of responses.
func MergePolicies(responses []PolicyResponse) PolicyResponse {
	var merged PolicyResponse
	for _, r := range responses {
		merged.ItemPolicy = merged.ItemPolicy.Merge(r.ItemPolicy)
		merged.OperationPolicy = merged.OperationPolicy.Merge(r.OperationPolicy)
	}
	return merged
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

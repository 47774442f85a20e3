package shared

import "context"

type deviceContextKey struct{}

// ContextWithDevice stores the scanning device identifier in context.
func ContextWithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, device)
}

// DeviceFromContext extracts the device identifier, if any.
func DeviceFromContext(ctx context.Context) string {
	device, _ := ctx.Value(deviceContextKey{}).(string)
	return device
}

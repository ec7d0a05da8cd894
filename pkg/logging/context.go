package logging

import (
	"context"
)

const (
	CorrelationIDKey = "correlation_id"
	FileIDKey        = "file_id"
	VendorIDKey      = "vendor_id"
	ServiceNameKey   = "service_name"
)

func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

func WithFileID(ctx context.Context, fileID string) context.Context {
	return context.WithValue(ctx, FileIDKey, fileID)
}

func WithVendorID(ctx context.Context, vendorID string) context.Context {
	return context.WithValue(ctx, VendorIDKey, vendorID)
}

func WithServiceName(ctx context.Context, serviceName string) context.Context {
	return context.WithValue(ctx, ServiceNameKey, serviceName)
}

func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

func GetFileID(ctx context.Context) string {
	if fileID, ok := ctx.Value(FileIDKey).(string); ok {
		return fileID
	}
	return ""
}

func GetVendorID(ctx context.Context) string {
	if vendorID, ok := ctx.Value(VendorIDKey).(string); ok {
		return vendorID
	}
	return ""
}

func GetServiceName(ctx context.Context) string {
	if serviceName, ok := ctx.Value(ServiceNameKey).(string); ok {
		return serviceName
	}
	return ""
}

func GetLogFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 8)

	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		fields = append(fields, "correlation_id", correlationID)
	}

	if fileID := GetFileID(ctx); fileID != "" {
		fields = append(fields, "file_id", fileID)
	}

	if vendorID := GetVendorID(ctx); vendorID != "" {
		fields = append(fields, "vendor_id", vendorID)
	}

	if serviceName := GetServiceName(ctx); serviceName != "" {
		fields = append(fields, "service_name", serviceName)
	}

	return fields
}

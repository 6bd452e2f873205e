//go:build onnx

package main

// Registers the "onnx" embedding provider.
import _ "github.com/rcliao/assoc-memory/internal/embedding/onnx"

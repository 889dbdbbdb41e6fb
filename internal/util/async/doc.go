// Package async fans independent node operations out to goroutines and
// reports every failure once all of them have returned.
package async

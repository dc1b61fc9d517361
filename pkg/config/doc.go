/*
Package config loads Burrow's YAML configuration and environment
overrides. The zero configuration is usable: data in ./data, HTTP on
:8440, info-level console logging, and the built-in hash embedder.
*/
package config

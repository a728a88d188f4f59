//go:build js && wasm

// Package localstorage wraps the browser's window.localStorage.
package localstorage

import "syscall/js"

func Get(key string) string {
	res := js.Global().Get("localStorage").Call("getItem", key)
	if res.IsNull() || res.IsUndefined() {
		return ""
	}
	return res.String()
}

func Set(key, value string) {
	js.Global().Get("localStorage").Call("setItem", key, value)
}

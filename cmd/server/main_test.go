package main

import (
	"reflect"
	"testing"
)

func TestOriginPatterns(t *testing.T) {
	got := originPatterns("http://localhost:5173, https://draw.example.com ,http://localhost:3000")
	want := []string{"localhost:5173", "draw.example.com", "localhost:3000"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("patterns = %v, want %v", got, want)
	}
}

func TestOriginPatternsBareHosts(t *testing.T) {
	got := originPatterns("localhost:3000,,")
	want := []string{"localhost:3000"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("patterns = %v, want %v", got, want)
	}
}

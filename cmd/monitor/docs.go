package main

//go:generate swag init -g cmd/monitor/main.go -o docs

// @title           MarketPulse API
// @version         0.1.0
// @description     Market data sync pipeline controls and derived analytics.
// @host            localhost:8080
// @BasePath        /
// @schemes         http

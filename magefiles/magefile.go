//go:build mage

package main

import (
	"fmt"
	"os"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "bin/vanishroom"
	mainPath   = "."
)

// Build собирает бинарник сервера
func Build() error {
	fmt.Println("Building server binary...")
	return sh.RunV("go", "build", "-o", binaryName, mainPath)
}

// Test прогоняет тесты с детектором гонок
func Test() error {
	fmt.Println("Running tests...")
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// Lint - go vet по всему модулю
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Check - линтер и тесты перед коммитом
func Check() {
	mg.SerialDeps(Lint, Test)
}

// MigrateUp применяет миграции журнала аудита через встроенную команду migrate
func MigrateUp() error {
	fmt.Println("Running migrations up...")
	return sh.RunV("go", "run", mainPath, "migrate", "up")
}

func MigrateDown() error {
	fmt.Println("Rolling back 1 migration...")
	return sh.RunV("go", "run", mainPath, "migrate", "down")
}

// Recover запускает восстановительный проход по заблокированным комнатам
func Recover() error {
	return sh.RunV("go", "run", mainPath, "recover")
}

func Clean() error {
	fmt.Println("Cleaning up...")
	return os.RemoveAll("bin")
}

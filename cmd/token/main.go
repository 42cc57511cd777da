// Command token はラベラー用のJWTを発行します。
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// Command genkey generates the ed25519 keypair for bearer token
// signing. The server only ever sees the public half, through
// AUTH_PUBLIC_KEY; the private half belongs to the identity service,
// or to cmd/token for local development.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

func main() {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		panic(err)
	}

	fmt.Printf("AUTH_PUBLIC_KEY=%s\n", base64.StdEncoding.EncodeToString(pub))
	fmt.Printf("signing key (keep private): %s\n", base64.StdEncoding.EncodeToString(priv))
	fmt.Println()
	fmt.Println("Start the server with AUTH_PUBLIC_KEY exported, and mint dev tokens with:")
	fmt.Println("  token -key <signing-key> -user <user-uuid>")
}

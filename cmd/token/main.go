// Command token mints a development bearer token for a user. The
// identity service issues tokens in real deployments; this exists so a
// local client can talk to a local server started with the matching
// AUTH_PUBLIC_KEY.
package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/nexthire/chatd/internal/identity"
)

func main() {
	privKeyB64 := flag.String("key", "", "Base64-encoded Ed25519 private key")
	userID := flag.String("user", "", "User UUID")
	ttl := flag.Duration("ttl", time.Hour, "Token lifetime")
	flag.Parse()

	if *privKeyB64 == "" || *userID == "" {
		fmt.Fprintln(os.Stderr, "Usage: token -key <private-key-base64> -user <user-uuid> [-ttl <duration>]")
		os.Exit(1)
	}

	privKeyBytes, err := base64.StdEncoding.DecodeString(*privKeyB64)
	if err != nil || len(privKeyBytes) != ed25519.PrivateKeySize {
		fmt.Fprintln(os.Stderr, "Invalid private key")
		os.Exit(1)
	}

	id, err := uuid.Parse(*userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid user UUID: %v\n", err)
		os.Exit(1)
	}

	token := identity.SignToken(ed25519.PrivateKey(privKeyBytes), id, time.Now().Add(*ttl))
	fmt.Println(token)
}

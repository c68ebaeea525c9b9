// Command tokengen issues signed test tokens for local development. Tokens
// use the dev signing key and will NOT work against a production deployment.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Dev signing key; matches config.go when JWT_SIGNING_KEY is not set.
const devSigningKey = "dev-secret-key-change-in-production"

func main() {
	var (
		sub         = flag.String("sub", "u-dev", "subject (user id)")
		name        = flag.String("name", "Dev User", "display name")
		role        = flag.String("role", "analyst", "role: analyst, manager, fpna_head, cfo")
		tenant      = flag.String("tenant", "default", "tenant id")
		costCenters = flag.String("cost-centers", "", "comma-separated allowed cost centers")
		ttl         = flag.Duration("ttl", 24*time.Hour, "token lifetime")
		key         = flag.String("key", devSigningKey, "HMAC signing key")
	)
	flag.Parse()

	claims := jwt.MapClaims{
		"sub":    *sub,
		"name":   *name,
		"role":   *role,
		"tenant": *tenant,
		"iat":    time.Now().Unix(),
		"exp":    time.Now().Add(*ttl).Unix(),
	}
	if *costCenters != "" {
		var ccs []string
		for _, cc := range strings.Split(*costCenters, ",") {
			if cc = strings.TrimSpace(cc); cc != "" {
				ccs = append(ccs, cc)
			}
		}
		claims["cost_centers"] = ccs
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(*key))
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	fmt.Println(signed)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZentaChain/zsock-node/pkg/zauth"
)

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a CURVE keypair",
		Long: `Generate a fresh CURVE keypair, Z85-encoded.

Give the public key to the handler's allow list; keep the secret key
with the connecting peer.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			public, secret, err := zauth.NewCurveKeypair()
			if err != nil {
				return fmt.Errorf("generate keypair: %w", err)
			}
			fmt.Printf("public: %s\n", public)
			fmt.Printf("secret: %s\n", secret)
			return nil
		},
	}
}

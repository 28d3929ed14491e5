//go:generate mockgen -destination=mock_contract_test.go -package=${GOPACKAGE} -source=contract.go
package user

import "context"

type DBRepo interface {
	UpdateUsername(ctx context.Context, userID, username string) error
}

package app

import (
	"context"

	"github.com/haukened/roomtemp/internal/domain"
	"github.com/haukened/roomtemp/internal/grpcx"
)

// ManagerConnector adapts *grpcx.Manager to the Connector port.
type ManagerConnector struct {
	Manager *grpcx.Manager
}

// Connect implements Connector.
func (c ManagerConnector) Connect(ctx context.Context, s domain.Settings) (Session, error) {
	h, err := c.Manager.Connect(ctx, s)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Current implements Connector.
func (c ManagerConnector) Current() (Session, error) {
	h, err := c.Manager.Current()
	if err != nil {
		return nil, err
	}
	return h, nil
}

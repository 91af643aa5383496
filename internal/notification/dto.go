package notification

import (
	"github.com/marvellous-media/marvellous-manager/internal/core/common/validation"
)

type SubscribeDTO struct {
	Endpoint string `json:"endpoint" validate:"notblank,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"notblank"`
		Auth   string `json:"auth" validate:"notblank"`
	} `json:"keys"`
}

func (d SubscribeDTO) Validate() error {
	return validation.Struct(d)
}

type UnsubscribeDTO struct {
	Endpoint string `json:"endpoint" validate:"notblank"`
}

func (d UnsubscribeDTO) Validate() error {
	return validation.Struct(d)
}

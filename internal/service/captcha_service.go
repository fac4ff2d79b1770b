package service

import (
	"errors"
	"strings"
	"time"

	"qrcollect/internal/config"

	"github.com/mojocn/base64Captcha"
)

var (
	ErrCaptchaRequired = errors.New("请输入验证码")
	ErrCaptchaInvalid  = errors.New("验证码错误或已过期")
)

// CaptchaChallenge 图片验证码
type CaptchaChallenge struct {
	CaptchaID   string `json:"captcha_id"`
	ImageBase64 string `json:"image_base64"`
}

// CaptchaVerifier 提交付款前的人机校验
type CaptchaVerifier interface {
	Verify(id, answer string) error
}

// CaptchaService 算术图片验证码，答案保存在进程内存中
type CaptchaService struct {
	enabled bool
	driver  base64Captcha.Driver
	store   base64Captcha.Store
}

func NewCaptchaService(cfg config.CaptchaConfig) *CaptchaService {
	maxStore := cfg.MaxStore
	if maxStore <= 0 {
		maxStore = 10240
	}
	expire := time.Duration(cfg.ExpireSeconds) * time.Second
	if expire <= 0 {
		expire = 5 * time.Minute
	}
	return &CaptchaService{
		enabled: cfg.Enabled,
		driver: base64Captcha.NewDriverMath(
			positive(cfg.Height, 60),
			positive(cfg.Width, 200),
			cfg.NoiseCount,
			base64Captcha.OptionShowHollowLine,
			nil,
			base64Captcha.DefaultEmbeddedFonts,
			nil,
		),
		store: base64Captcha.NewMemoryStore(maxStore, expire),
	}
}

func (s *CaptchaService) Enabled() bool {
	return s.enabled
}

func (s *CaptchaService) Generate() (*CaptchaChallenge, error) {
	id, b64s, _, err := base64Captcha.NewCaptcha(s.driver, s.store).Generate()
	if err != nil {
		return nil, err
	}
	return &CaptchaChallenge{
		CaptchaID:   strings.TrimSpace(id),
		ImageBase64: strings.TrimSpace(b64s),
	}, nil
}

// Verify 校验后立即作废，未启用时直接通过
func (s *CaptchaService) Verify(id, answer string) error {
	if !s.enabled {
		return nil
	}
	id = strings.TrimSpace(id)
	answer = strings.TrimSpace(answer)
	if id == "" || answer == "" {
		return ErrCaptchaRequired
	}
	if !s.store.Verify(id, answer, true) {
		return ErrCaptchaInvalid
	}
	return nil
}

func positive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

package camera

import (
	"github.com/your-org/hostelpass/internal/config"
)

func configForTest() config.CameraConfig {
	return config.CameraConfig{Device: "/dev/video9", Width: 720, FPS: 5}
}

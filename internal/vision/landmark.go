package vision

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// LandmarkRefiner predicts 106 facial landmarks (InsightFace 2d106det) for a
// face crop. The refiner is used to re-center the crop before embedding so
// the recognition head sees a consistently framed face.
type LandmarkRefiner struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	points       int
}

// NewLandmarkRefiner loads the 2d106det ONNX model.
func NewLandmarkRefiner(modelPath string) (*LandmarkRefiner, error) {
	// 2d106det expects a 192x192 crop and emits 106 (x, y) pairs.
	inputW, inputH := 192, 192
	points := 106

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(inputH), int64(inputW)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(points*2)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"data"},
		[]string{"fc1"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create landmark session: %w", err)
	}

	return &LandmarkRefiner{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		points:       points,
	}, nil
}

// Refine predicts landmark positions for a face crop.
// faceData must be CHW [3, 192, 192], normalized. The returned coordinates
// are in crop-relative units scaled to [0, cropW) x [0, cropH).
func (l *LandmarkRefiner) Refine(faceData []float32, cropW, cropH int) ([][2]float32, error) {
	copy(l.inputTensor.GetData(), faceData)

	if err := l.session.Run(); err != nil {
		return nil, fmt.Errorf("run landmarks: %w", err)
	}

	data := l.outputTensor.GetData()
	if len(data) < l.points*2 {
		return nil, fmt.Errorf("unexpected output size: %d", len(data))
	}

	// Raw outputs are in [-1, 1] relative to the crop center.
	landmarks := make([][2]float32, l.points)
	for i := 0; i < l.points; i++ {
		landmarks[i][0] = (data[i*2] + 1) * float32(cropW) / 2
		landmarks[i][1] = (data[i*2+1] + 1) * float32(cropH) / 2
	}

	return landmarks, nil
}

// InputSize returns the expected face crop dimensions.
func (l *LandmarkRefiner) InputSize() (int, int) {
	return l.inputW, l.inputH
}

func (l *LandmarkRefiner) Close() {
	if l.session != nil {
		l.session.Destroy()
	}
	if l.inputTensor != nil {
		l.inputTensor.Destroy()
	}
	if l.outputTensor != nil {
		l.outputTensor.Destroy()
	}
}

// landmarkCentroid averages landmark positions. The engine uses it to nudge
// the embedding crop toward the true face center.
func landmarkCentroid(landmarks [][2]float32) (float32, float32) {
	if len(landmarks) == 0 {
		return 0, 0
	}
	var sx, sy float32
	for _, p := range landmarks {
		sx += p[0]
		sy += p[1]
	}
	n := float32(len(landmarks))
	return sx / n, sy / n
}

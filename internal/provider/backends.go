package provider

import (
	"sync"

	"github.com/OCAP2/smoothsync/pkg/core"
	"github.com/go-gl/mathgl/mgl64"
)

// Static is a plain transform without velocities, such as a scene component
// moved directly by game code.
type Static struct {
	mu            sync.RWMutex
	position      mgl64.Vec3
	rotation      mgl64.Quat
	scale         mgl64.Vec3
	authoritative bool
}

// NewStatic creates a transform at the origin with identity rotation and unit
// scale.
func NewStatic(authoritative bool) *Static {
	s := &Static{}
	s.init(authoritative)
	return s
}

func (s *Static) init(authoritative bool) {
	s.rotation = mgl64.QuatIdent()
	s.scale = mgl64.Vec3{1, 1, 1}
	s.authoritative = authoritative
}

func (s *Static) Position() mgl64.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.position
}

func (s *Static) SetPosition(v mgl64.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = v
}

func (s *Static) Rotation() mgl64.Quat {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rotation
}

func (s *Static) SetRotation(q mgl64.Quat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotation = q
}

func (s *Static) Scale() mgl64.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scale
}

func (s *Static) SetScale(v mgl64.Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scale = v
}

func (s *Static) LinearVelocity() mgl64.Vec3 { return mgl64.Vec3{} }
func (s *Static) SetLinearVelocity(mgl64.Vec3) {}
func (s *Static) AngularVelocity() mgl64.Vec3 { return mgl64.Vec3{} }
func (s *Static) SetAngularVelocity(mgl64.Vec3) {}
func (s *Static) MotionMode() uint8 { return 0 }
func (s *Static) SetMotionMode(uint8) {}
func (s *Static) Capabilities() Capabilities { return Capabilities{} }

func (s *Static) IsAuthoritative() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authoritative
}

// SetAuthoritative changes which side of the sync this transform is on.
func (s *Static) SetAuthoritative(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authoritative = v
}

// Mover is a transform driven by a movement component that reports a linear
// velocity but does not simulate physics.
type Mover struct {
	Static
	velocity mgl64.Vec3
}

// NewMover creates a movement-component backed transform.
func NewMover(authoritative bool) *Mover {
	m := &Mover{}
	m.init(authoritative)
	return m
}

func (m *Mover) LinearVelocity() mgl64.Vec3 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.velocity
}

func (m *Mover) SetLinearVelocity(v mgl64.Vec3) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.velocity = v
}

func (m *Mover) Capabilities() Capabilities {
	return Capabilities{LinearVelocity: true}
}

// Step moves the transform along its velocity for dt seconds.
func (m *Mover) Step(dt float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = m.position.Add(m.velocity.Mul(dt))
}

// Body is a physics-simulated rigid body. The host integrates its
// velocities every step; the engine only feeds it velocities while
// extrapolating and zeroes them while interpolating.
type Body struct {
	Static
	velocity        mgl64.Vec3
	angularVelocity mgl64.Vec3
	linearDamping   float64
	angularDamping  float64
}

// NewBody creates a rigid body with the given damping factors.
func NewBody(authoritative bool, linearDamping, angularDamping float64) *Body {
	b := &Body{linearDamping: linearDamping, angularDamping: angularDamping}
	b.init(authoritative)
	return b
}

func (b *Body) LinearVelocity() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.velocity
}

func (b *Body) SetLinearVelocity(v mgl64.Vec3) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.velocity = v
}

func (b *Body) AngularVelocity() mgl64.Vec3 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.angularVelocity
}

func (b *Body) SetAngularVelocity(v mgl64.Vec3) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.angularVelocity = v
}

func (b *Body) Capabilities() Capabilities {
	return Capabilities{
		LinearVelocity:  true,
		AngularVelocity: true,
		Simulated:       true,
		LinearDamping:   b.linearDamping,
		AngularDamping:  b.angularDamping,
	}
}

// Step integrates velocities and damping over dt seconds.
func (b *Body) Step(dt float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.position = b.position.Add(b.velocity.Mul(dt))
	b.rotation = b.rotation.Mul(core.QuatFromEuler(b.angularVelocity.Mul(dt))).Normalize()
	b.velocity = b.velocity.Sub(b.velocity.Mul(dt * b.linearDamping))
	b.angularVelocity = b.angularVelocity.Sub(b.angularVelocity.Mul(dt * b.angularDamping))
}

// Character is a character movement component: a linear velocity plus a
// discrete motion mode such as walking, falling or swimming.
type Character struct {
	Mover
	mode uint8
}

// NewCharacter creates a character backed transform.
func NewCharacter(authoritative bool) *Character {
	c := &Character{}
	c.init(authoritative)
	return c
}

func (c *Character) MotionMode() uint8 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

func (c *Character) SetMotionMode(mode uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
}

func (c *Character) Capabilities() Capabilities {
	return Capabilities{LinearVelocity: true, MotionMode: true}
}

var (
	_ TransformProvider = (*Static)(nil)
	_ TransformProvider = (*Mover)(nil)
	_ TransformProvider = (*Body)(nil)
	_ TransformProvider = (*Character)(nil)
)

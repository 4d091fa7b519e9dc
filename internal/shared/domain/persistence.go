package domain

import "context"

// TransactionManager delimita la unidad de trabajo: todo lo que se ejecuta
// dentro de fn se confirma o se descarta de forma atómica. Si fn devuelve un
// error la transacción entera se revierte (mutación del agregado y registro
// outbox incluidos) y el error original se propaga sin envolver.
//
// La transacción viaja en el context, de modo que los repositorios que
// reciben ese context escriben dentro de la misma transacción sin acoplarse
// al driver concreto.
type TransactionManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
